package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// 1-hour cache breakpoint.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}

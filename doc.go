// Package abstractllm provides a unified interface to large language model
// providers.
//
// A provider is created by name and configured through a flat parameter set.
// Parameters resolve deterministically across three layers — provider
// defaults, the configuration given to New, and per-call options — with
// later layers winning:
//
//	p, err := abstractllm.New(ctx, "anthropic", config.Params{
//		config.Model:       "claude-3-5-haiku-20241022",
//		config.Temperature: 0.7,
//	})
//	if err != nil {
//		// ...
//	}
//
//	resp, err := p.Generate(ctx, "Hello!", llm.WithTemperature(0.2))
//
// Streaming delivers the same reply incrementally over a channel:
//
//	ch, err := p.GenerateStream(ctx, "Hello!")
//	for chunk := range ch {
//		fmt.Print(chunk.Delta)
//	}
//
// Files attach through the media package, which loads local paths, URLs,
// data URIs, and s3:// objects into the shapes each backend expects.
// Output handlers registered with WithHandlers observe every request,
// chunk, and response for logging, mirroring, or debug capture.
package abstractllm

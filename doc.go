// Package agentcore is an autonomous agent runtime core: a resilient
// executor, a lane-based task queue, a periodic/one-shot scheduler, an
// agent tool-call loop with a deterministic router and integrity
// guards, and a layered markdown-file memory manager.
//
// # Core pieces
//
//   - [Executor] — retries with jittered backoff and a per-op circuit
//     breaker, shared by every subsystem that calls an LLM or a tool.
//   - [laneQueue] — three independent FIFO lanes (fast, slow,
//     background) with fixed concurrency caps; no cross-lane
//     work-stealing.
//   - scheduler — ticks periodic reminders and a synthetic heartbeat,
//     fires one-time reminders at-most-once, persists state atomically.
//   - RunAgent (agentloop.go) — the streaming tool-call loop: compaction
//     check, deterministic router, skill/plan assembly, system prompt
//     build, streaming tool execution, integrity guards, turn epilogue.
//   - the memory manager (memorystore.go, memorygoals.go,
//     memoryextract.go) — bootstrap context assembly, per-turn
//     deterministic extraction, periodic episodic writes, and
//     compaction-time summarization, all backed by plain markdown
//     files.
//
// # Providers
//
// [Provider] abstracts the LLM backend; provider/openaicompat
// implements it for any OpenAI-compatible chat completions API.
package agentcore

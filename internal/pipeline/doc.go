// Package pipeline implements the stateful workflow engine that drives a
// feature-mining run.
//
// A run threads a single Context through a fixed, cyclic node graph:
//
//	Start → Supervisor → Extractor ⟲ → Standardizer → Reporter →
//	DBUpdater → GraphUpdater → Supervisor → ... → End
//
// with a direct Supervisor → Analyzer → Supervisor branch for analysis
// requests. Stage handlers never call each other; all data flows through the
// Context, and each handler returns a Decision telling the engine where to go
// next. The engine enforces the edge table, an iteration guard against
// unbounded cycles, and converts handler errors into recorded events plus a
// partial-failure transition to End instead of propagating them.
package pipeline

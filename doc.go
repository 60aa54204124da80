// Package kuroko2 provides admission control and lifecycle guarding for
// schedulable job definitions. A definition owns job instances; each running
// instance reports status tokens (working, failure, critical, finished). The
// admission gate decides whether a new instance may launch given the live
// tokens of the definition's other instances and its configured prevent-multi
// mode; the lifecycle guard refuses to destroy a definition while any of its
// instances still carries a token.
//
// Kuroko2 is designed as a library, not a service. Import it, configure a
// store, and drive the engine from your own launch and management layer.
//
// # Quick Start
//
//	s := memory.New()
//	eng, err := engine.New(
//	    engine.WithStore(s),
//	)
//
//	def := &definition.Definition{
//	    Name:         "nightly-batch",
//	    PreventMulti: definition.PreventMultiWorkingOrError,
//	}
//	_ = eng.CreateDefinition(ctx, def)
//
//	inst, admitted, _ := eng.Launch(ctx, def.ID)
//
// # Architecture
//
// Kuroko2 follows a composable store pattern where each subsystem
// (definition, instance, token, lock) defines its own store interface.
// A single backend implements all of them; memory, postgres, redis, mongo,
// and bun backends ship in store/.
//
// The admission core (package admission) is pure: it decides over a snapshot
// of token statuses and performs no writes. Serialization of concurrent
// launches happens one layer up, in package launch, under a per-definition
// keyed mutex and an optional store-backed TTL lock.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package kuroko2

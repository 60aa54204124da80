// Package engine wires all kuroko2 subsystems together: the store, the
// admission gate, the lifecycle guard, the launcher, the middleware chain,
// and the extension registry.
//
// This package exists to break the import cycle: the root kuroko2 package
// defines Entity (imported by definition, instance, token) and so cannot
// import those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

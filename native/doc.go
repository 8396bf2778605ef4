// Package native implements the entry points the host runtime calls.
//
// Every entry point takes the Env of the calling host thread, converts its
// arguments, calls into the engine and converts failures into host
// exceptions: argument failures raise IllegalArgumentException, everything
// else raises RuntimeException. A panic inside an entry point terminates
// only the current call and surfaces as RuntimeException. Functions that
// return a value return 0, or -1 for reads, when they raise.
//
// OnLoad resolves the host symbols, starts the engine and attaches every
// scheduler worker to the host once, so callbacks can be invoked from those
// workers. OnUnload stops the engine and releases the symbols.
package native

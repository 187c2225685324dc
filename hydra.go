// Package hydra provides the editing bridge between an administrative
// application and a rendered frontend loaded in a sandboxed content frame.
// The two runtimes never share memory: everything flows through a single
// ordered, origin-stamped message channel, and this package defines that
// protocol: the message vocabulary, the payload schemas, the router that
// enforces origin and schema checks, and the block model both sides agree on.
//
// The frame side of the bridge lives in internal/frame, the admin side in
// internal/admin. Neither touches the channel directly; all traffic goes
// through a Router.
package hydra

// Package engine implements the durable workflow execution engine: the
// execution and step state machines, the persistence contract that keeps
// them safe under concurrent workers, the signal and timer event
// subsystem, and the level-wise parallel orchestrator.
//
// The engine holds no global state. Every component takes its
// collaborators (Store, Bus, Clock, ToolInvoker, CodeRunner) explicitly,
// and workers never share mutable state: coordination happens strictly
// through the store's conditional writes. Any crash between a step claim
// and its outcome write leaves a reclaimable row behind; a later delivery
// resumes the execution from its checkpoints.
package engine

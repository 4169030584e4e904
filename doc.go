// Package brewing is the composition root of a local-first collection of
// product specifications.
//
// Edits apply to an in-memory snapshot immediately and are persisted in the
// background through a collaborator: Markdown files in a .brewing project
// directory, the brewing REST API, or memory. A failed persistence call
// rolls the optimistic change back; late results of superseded changes are
// ignored. Live queries recompute on every change, and rapid edits of a
// field can be coalesced into a single write with the debounce
// coordinator.
//
// Usage:
//
//	ws, err := brewing.Open("./project", brewing.WithAutoInit(true))
//	if err != nil {
//		return err
//	}
//	defer ws.Close(ctx)
//
//	tx, err := ws.Store.Insert(brewing.Specification{Name: "Login flow"})
//	if err != nil {
//		return err
//	}
//	if err := tx.Wait(ctx); err != nil {
//		// rolled back
//	}
package brewing

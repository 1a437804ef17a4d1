// Package session implements the unit of work over the store.
//
// A Factory holds the process-wide collaborators (store, registry, shared
// second-level cache) and hands out Sessions. A Session serves one caller:
//
//	s := factory.NewSession()
//	defer s.Close(ctx)
//
//	dog, err := session.Find[testsupport.Dog](ctx, s, 1)
//
//	if err := s.Begin(ctx); err != nil {
//		return err
//	}
//	dog.Name = "Lassie II" // written on commit by dirty checking
//	if err := s.Commit(ctx); err != nil {
//		return s.Rollback(ctx)
//	}
//
// Lookups go through the identity map, then the shared cache, then the store.
// Within one session two lookups of the same entity return the same pointer.
//
// Writes are staged by Persist and Remove and reach the store on Flush or
// Commit, in the order they were staged. Both require an active transaction;
// the store transaction itself is opened on the first statement after Begin.
//
// GetReference is lazy: its ID is known without a store read and Get loads
// the entity once.
package session

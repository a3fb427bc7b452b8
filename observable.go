package bind

// Observable is the type-erased view of a value used to wire dependencies.
type Observable interface {
	// ID returns the generated identity of the observable.
	ID() string

	// Name returns the configured name, or "" when unnamed.
	Name() string

	// Subscribe registers sink as a target owned by owner.
	Subscribe(owner any, sink Sink) Unbind
}

// Group is implemented by objects that own observables, such as view
// models. A derived value depending on a Group is recomputed when any of
// the group's observables changes.
type Group interface {
	Observables() []Observable
}

// GroupOf bundles observables into a Group.
type GroupOf []Observable

// Observables returns the bundled observables.
func (g GroupOf) Observables() []Observable {
	return g
}

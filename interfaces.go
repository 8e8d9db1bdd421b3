package oaksub

import "github.com/home-river/OAK-sub001/internal/interfaces"

// Observer, Renderer, and NoOpObserver are defined once in
// internal/interfaces so every internal package can depend on the
// contract without importing this root package; these are aliases, not
// copies.
type (
	Observer     = interfaces.Observer
	Renderer     = interfaces.Renderer
	NoOpObserver = interfaces.NoOpObserver
)

package auth

// Navigator abstracts the routing layer: the service asks for a route
// change, the UI shell decides how to perform it.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a plain function to the Navigator interface.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

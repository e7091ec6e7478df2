package router

import (
	tg "github.com/botfsm/botfsm/core/telegram"
)

// Routes assembles the standard route set: text and documents, photo and
// video, and button callbacks, all dispatched engine-first.
func Routes(eng Dispatcher, reg *tg.Registry, textOpts TextOptions, cbOpts CallbackOptions) []tg.Route {
	routes := TextRoutes(eng, reg, textOpts)
	routes = append(routes, MediaRoutes(eng, textOpts)...)
	routes = append(routes, CallbackRoute(eng, reg, cbOpts))
	return routes
}

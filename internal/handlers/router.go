package handlers

import (
	"net/http"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	userHandler *UserHandler,
	authMiddleware func(next http.Handler) http.Handler,
	mds ...func(next http.Handler) http.Handler,
) http.Handler {
	apiauth := http.NewServeMux()
	apiauth.Handle("/", authHandler.Handler())
	apiauth.Handle("/me", authMiddleware(userHandler.Handler()))
	apiauth.Handle("/password", authMiddleware(userHandler.Handler()))
	apiauth.Handle("/email", authMiddleware(userHandler.Handler()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	return chain(root, mds...)
}

package main

import (
	"net/http"

	"github.com/mcdev12/boardwalk/go/internal/debugserver"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	handler := debugserver.NewHandler(services.Room, func() (bool, string) {
		cred := services.Gate.CurrentCredential()
		if cred == nil {
			return false, ""
		}
		return true, cred.Subject
	})
	return debugserver.NewServer(cfg.Debug.Port, handler)
}

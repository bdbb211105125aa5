package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"})

	refreshAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_attempts_total",
		Help: "Refresh token exchanges by outcome.",
	}, []string{"result"})
)

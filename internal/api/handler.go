package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"laundry-smart-queue/internal/feed"
	"laundry-smart-queue/internal/laundry"
	"laundry-smart-queue/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *laundry.Service
	store   store.Store
	hub     *feed.Hub
	webpush *webpush.Options
	log     logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(svc *laundry.Service, s store.Store, hub *feed.Hub, webpushOptions *webpush.Options, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		svc:     svc,
		store:   s,
		hub:     hub,
		webpush: webpushOptions,
		log:     log,
	}
}

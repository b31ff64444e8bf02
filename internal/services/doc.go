// Package services holds the shared error taxonomy and context annotations
// used by the stage handlers and their external service clients.
package services

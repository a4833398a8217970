package biometric

//go:generate mockgen -source=backend.go -destination=mocks/backend.go -package=mocks RecognitionBackend

import (
	"context"

	id "vigil/pkg/domain"
)

// RecognitionBackend is the external face-recognition service. It is a black
// box to this module: images go in, similarity rankings come out. All calls
// perform network I/O and must be invoked with a bounded-timeout context.
type RecognitionBackend interface {
	// AddFace enrolls one image for the subject and returns the backend's
	// image handle.
	AddFace(ctx context.Context, subjectID id.SubjectID, image []byte) (string, error)

	// Recognize returns up to limit candidates ranked by similarity.
	Recognize(ctx context.Context, image []byte, limit int) ([]Match, error)

	// DeleteFaces removes every enrolled image for the subject.
	DeleteFaces(ctx context.Context, subjectID id.SubjectID) error

	// Health reports whether the backend is reachable and serving.
	Health(ctx context.Context) error
}

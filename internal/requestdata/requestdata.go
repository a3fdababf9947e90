package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/access"
)

var requestDataKey = struct{}{}

// RequestData is the already-authenticated actor identity plus the role set
// resolved by the auth collaborator. The engine never resolves roles itself.
type RequestData struct {
	ActorID uuid.UUID
	Email   string
	Roles   []access.Role
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

package httpserver

import (
	"context"

	"github.com/bubelovv/fcp-bot/internal/service"
)

type Service interface {
	HandleComment(ctx context.Context, ev service.CommentEvent) error
}

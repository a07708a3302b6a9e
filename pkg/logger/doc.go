// Package logger builds *slog.Logger instances with functional options and
// provides attribute helpers that keep key names consistent across services.
//
// New picks a text or JSON handler, applies static attributes and wraps the
// result in LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record so request-scoped values (team ID, request ID)
// appear without being passed explicitly.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "demandkit"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	logger.SetAsDefault(log)
//
//	log.WarnContext(ctx, "usage counter failed",
//	    logger.TeamID(teamID),
//	    logger.Resource("boards"),
//	    logger.Error(err),
//	)
//
// Error and the ID helpers return an empty Attr for nil values, so callers
// never need a nil check before logging.
package logger

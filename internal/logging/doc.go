// Package logging wraps Zap for assistantd.
//
// It adds a Trace level below Debug, correlation fields pulled from the
// context (trace, session, request and agent), sampling that never drops
// errors, and an encoder that redacts credential-looking fields. Components
// take a plain *zap.Logger from Logger.Underlying.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "message handled", zap.String("agent", "task"))
package logging

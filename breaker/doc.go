// Package breaker implements the circuit breaker that guards the remote cache.
//
// The breaker follows the usual CLOSED, OPEN and HALF_OPEN cycle:
//
//	cb := breaker.New(breaker.DefaultConfig(),
//		breaker.WithName("redis"),
//		breaker.WithLogger(logger),
//		breaker.WithHealthCheck(redisStore.Ping),
//	)
//	defer cb.Close()
//
//	value, err := breaker.Do(ctx, cb, readRemote, readLocal)
//
// While OPEN the wrapped operation is never invoked. A reset timer moves the
// breaker to HALF_OPEN after Config.ResetTimeout, and a monitor requests a
// health check every Config.MonitorInterval. Health check results are fed
// back through ReportHealthCheck, or by the monitor itself when a health check is
// configured.
//
// Transitions are published on Events(). The channel is buffered and sends
// never block, so consumers that fall behind lose events rather than stall
// the breaker.
package breaker

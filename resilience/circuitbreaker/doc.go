// Package circuitbreaker implements a three-state circuit breaker and a
// manager that orchestrates per-service breakers.
//
// A breaker guards one named operation. While CLOSED, calls pass through and
// failures are counted; once the failure threshold is reached the breaker
// OPENs and calls fast-fail until the recovery timeout elapses. The first
// call after that window transitions the breaker to HALF_OPEN and probes the
// underlying operation; enough consecutive successes close the circuit, any
// failure reopens it.
//
//	[Closed] --(failures >= threshold)--> [Open]
//	[Open]   --(recovery timeout)-------> [Half-Open]
//	[Half-Open] --(successes >= threshold)--> [Closed]
//	[Half-Open] --(any failure)-------------> [Open]
//
// Use NewManager to create and manage per-service breakers, then run calls
// through Manager.Execute so failures are tracked consistently across
// callers. Optional health-check integration (NewHealthChecker) can
// automatically reset breakers after downstream services recover.
package circuitbreaker

// Package batch multiplexes several API calls onto one POST /batch request.
//
// Build an Envelope, send it through a Coordinator and read the per-id
// outcome from the Results:
//
//	env := batch.NewEnvelope(0)
//	env.Add(http.MethodGet, "/customers/1")
//	env.Add(http.MethodGet, "/customers/2", batch.WithID("second"))
//
//	results, err := batch.NewCoordinator(apiClient).Send(ctx, env)
//	if err != nil {
//		return err
//	}
//	if !results.AllSuccessful() {
//		log.Warn().Strs("failed", results.Failed()).Msg("Partial batch failure")
//	}
//
// Ids missing from the response are reported as not successful, never
// dropped. The physical call is retried as a unit by the client; use
// WithoutRetry to send batches containing writes with a single attempt.
//
// # Metrics
//
//   - so24_batch_requests_total{outcome} - Physical batch calls (success, error, invalid)
//   - so24_batch_size - Sub-requests per physical call
//   - so24_batch_subrequests_total{result} - Sub-request outcomes (success, failure, missing)
package batch

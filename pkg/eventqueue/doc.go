// Package eventqueue is the single ingress between enqueuers and the scheduler.
//
// Enqueuers push events through EventQueue.Enqueue. The queue hands the event
// to the typed sub-queue registered for its type, then to the Handler (the
// scheduler). Placement is never decided here: the event type is only used to
// find the sub-queue.
//
// The queue also owns the transport worker processes talk to:
//
//	GET  /workers/:id/next        long poll; raises Handler.GotWorker and answers
//	                              with the event once one is scheduled on the worker
//	POST /events/:id/complete     {"success": bool}; raises Handler.Complete
//	*    /queues/<type>/...       routes contributed by sub-queues
//
// A worker loops over next → run → complete; every call to next tells the
// scheduler the worker is ready for more work.
package eventqueue

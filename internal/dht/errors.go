package dht

import "errors"

// Sentinel errors per the error-handling design: every RPC handler and
// maintenance loop inspects these with errors.Is and logs; none propagate
// out of Put or Get.
var (
	// ErrPeerUnreachable is returned by doRPC/doRPCEither when the send
	// fails or no matching response arrives within MaxSyncWait.
	ErrPeerUnreachable = errors.New("dht: peer unreachable")
	// ErrClockSkewRejected marks a STORE_QUERY/STORE_DATA whose
	// publicationTime exceeded MaxClockSkew.
	ErrClockSkewRejected = errors.New("dht: publication time exceeds clock skew")
	// ErrAdmissionConflict is returned by admit when a bucket is full and
	// its stalest contact answers a PING, so the applicant is rejected.
	ErrAdmissionConflict = errors.New("dht: admission conflict, blocker is live")
	// ErrRepositoryUnavailable is returned by repoOrErr when a Node was
	// constructed without a repository.
	ErrRepositoryUnavailable = errors.New("dht: repository unavailable")
)

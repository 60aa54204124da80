package redis

// Redis key naming conventions for kuroko2 data.
// All keys are prefixed with "kuroko2:" to avoid collisions.

const keyPrefix = "kuroko2:"

// ── Definition keys ──

// definitionKey returns the key for a definition entity: kuroko2:definition:{id}
func definitionKey(id string) string { return keyPrefix + "definition:" + id }

// definitionIDsKey is the Sorted Set tracking all definition IDs for ordered
// enumeration (score 0; member order is lexicographic, matching ID order).
const definitionIDsKey = keyPrefix + "definition_ids"

// ── Instance keys ──

// instanceKey returns the key for an instance entity: kuroko2:instance:{id}
func instanceKey(id string) string { return keyPrefix + "instance:" + id }

// definitionInstancesKey tracks instance IDs per definition.
func definitionInstancesKey(defID string) string {
	return keyPrefix + "definition_instances:" + defID
}

// ── Token keys ──

// tokenKey returns the key for a token entity: kuroko2:token:{id}
func tokenKey(id string) string { return keyPrefix + "token:" + id }

// instanceTokensKey tracks token IDs per instance.
func instanceTokensKey(instID string) string {
	return keyPrefix + "instance_tokens:" + instID
}

// definitionTokensKey tracks token IDs per definition, for the admission
// snapshot and the lifecycle guard's count.
func definitionTokensKey(defID string) string {
	return keyPrefix + "definition_tokens:" + defID
}

// ── Lock keys ──

// lockKey returns the launch lock key: kuroko2:lock:{definitionID}
func lockKey(defID string) string { return keyPrefix + "lock:" + defID }

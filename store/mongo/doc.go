// Package mongo implements the store using the official MongoDB driver.
// Entities are stored as BSON documents; the launch lock uses an atomic
// upsert whose filter only matches absent, expired, or self-held locks.
package mongo

// Package api provides HTTP handlers for the generation pipeline: node
// expansion, tree bootstrap, and the admin surface over the image task and
// job queues.
package api

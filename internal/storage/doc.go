// Package storage persists clients, projects, tasks and calendar events for
// the scheduler.
//
// All drivers implement Store, which satisfies the scheduler's task and
// event repositories plus its atomic check-and-write extension.
package storage

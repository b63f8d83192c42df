// Package app provides the Application Composition Layer for the service layer.
//
// # Architecture Role
//
// The app package composes the domain services in services/ into one running
// application. It is NOT a business logic layer.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Store selection, service wiring and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── article/        # Articles and URL keys
//	│   ├── friend/         # Friend edges
//	│   ├── goals/          # Missions, streaks and reading activity
//	│   └── ...             # Other domain models
//	├── system/             # Lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// # Wiring
//
//	users ──resolver──► friends ──observer──► goals ◄──observer── reactions
//	                       │                    │
//	                       └──friend count──────┘
//	friends + reactions ──► social (live friend feed)
//
// Every service mounts its routes on the shared /v1 subrouter. /health and
// /info live on the root router.
package app

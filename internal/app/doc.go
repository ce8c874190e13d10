// Package app composes the trust core services into a running application.
//
// The layering is:
//
//	cmd/trustcore
//	      │
//	      ▼
//	internal/app (composition: Application, wiring, lifecycle)
//	      │
//	      ├──► internal/app/services  (registry, deviceauth, commission,
//	      │                            fraud, settlement, vault,
//	      │                            suppliercredit, protocol)
//	      ├──► internal/app/storage   (TenantStore, OrderStore, ... with
//	      │                            memory and postgres implementations)
//	      ├──► internal/app/domain    (pure data models)
//	      ├──► internal/app/funds     (value-transfer substrate)
//	      ├──► internal/app/events    (outbound notification bus)
//	      └──► internal/app/httpapi   (REST surface)
//
// Services hold the business rules and talk to each other through narrow
// consumer interfaces, never concretely, so each can be tested against the
// in-memory store alone.
package app

// Package integration contains the marketplace synchronization bounded context.
// It reconciles externally owned state (orders, products, support tickets) from
// marketplaces such as Mercado Livre and Shopee into the canonical local store.
//
// Key concepts:
//   - Store: a connected marketplace seller account and its OAuth credential
//   - MarketplaceAdapter: pure mapping from opaque marketplace payloads to drafts
//   - MarketplaceClient: port for the marketplace HTTP API (treated as opaque)
//   - Order, Product, SupportTicket: canonical records keyed by natural keys
//   - SyncJob: durable unit of background work owned by the job queue
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration

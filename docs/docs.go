// Package docs registers the OpenAPI document served at /swagger/*any.
//
// The document mirrors the godoc annotations on the HTTP handlers; run
// `swag init -g cmd/server/main.go` to regenerate it after changing them.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "security": [{"BearerAuth": []}],
    "paths": {
        "/listings": {
            "get": {
                "tags": ["Listings"], "summary": "Browse active listings", "operationId": "browseListings",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "enum": ["give","swap","sell","request","rehome"], "name": "intent", "in": "query"},
                    {"type": "string", "description": "Free text query", "name": "q", "in": "query"},
                    {"type": "string", "name": "owner", "in": "query"},
                    {"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListListingsResponse"}},
                    "400": {"$ref": "#/responses/error"}
                }
            },
            "post": {
                "tags": ["Listings"], "summary": "Create a listing", "operationId": "createListing",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateListingRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Listing"}},
                    "400": {"$ref": "#/responses/error"},
                    "401": {"$ref": "#/responses/error"}
                }
            }
        },
        "/listings/mine": {
            "get": {
                "tags": ["Listings"], "summary": "List the caller's listings", "operationId": "myListings",
                "parameters": [{"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListListingsResponse"}}}
            }
        },
        "/listings/{id}": {
            "get": {
                "tags": ["Listings"], "summary": "Get a listing", "operationId": "getListing",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Listing"}},
                    "404": {"$ref": "#/responses/error"}
                }
            },
            "delete": {
                "tags": ["Listings"], "summary": "Remove a listing", "operationId": "removeListing",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Listing"}},
                    "400": {"$ref": "#/responses/error"},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/listings/{id}/status": {
            "post": {
                "tags": ["Listings"], "summary": "Change a listing's status", "operationId": "transitionListing",
                "parameters": [
                    {"$ref": "#/parameters/id"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ListingStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Listing"}},
                    "400": {"$ref": "#/responses/error"},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/agreements": {
            "get": {
                "tags": ["Agreements"], "summary": "List the caller's agreements", "operationId": "listAgreements",
                "parameters": [
                    {"type": "string", "enum": ["incoming","outgoing"], "name": "role", "in": "query"},
                    {"type": "string", "enum": ["pending","accepted","declined","withdrawn"], "name": "status", "in": "query"},
                    {"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListAgreementsResponse"}},
                    "400": {"$ref": "#/responses/error"}
                }
            },
            "post": {
                "tags": ["Agreements"], "summary": "Propose an agreement", "operationId": "proposeAgreement",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ProposeRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.ProposeResponse"}},
                    "400": {"$ref": "#/responses/error"},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"},
                    "409": {"$ref": "#/responses/error"},
                    "503": {"$ref": "#/responses/error"}
                }
            }
        },
        "/agreements/{id}": {
            "get": {
                "tags": ["Agreements"], "summary": "Get an agreement", "operationId": "getAgreement",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AgreementView"}},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/agreements/{id}/resolve": {
            "post": {
                "tags": ["Agreements"], "summary": "Resolve an agreement", "operationId": "resolveAgreement",
                "parameters": [
                    {"$ref": "#/parameters/id"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResolveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ResolveResult"}},
                    "400": {"$ref": "#/responses/error"},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"},
                    "409": {"$ref": "#/responses/error"},
                    "503": {"$ref": "#/responses/error"}
                }
            }
        },
        "/transactions": {
            "get": {
                "tags": ["Transactions"], "summary": "List completed exchanges", "operationId": "listTransactions",
                "parameters": [
                    {"type": "string", "enum": ["given","received"], "name": "role", "in": "query", "required": true},
                    {"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListTransactionsResponse"}},
                    "400": {"$ref": "#/responses/error"}
                }
            }
        },
        "/conversations": {
            "get": {
                "tags": ["Conversations"], "summary": "List the caller's inbox", "operationId": "listConversations",
                "parameters": [{"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListConversationsResponse"}}}
            },
            "post": {
                "tags": ["Conversations"], "summary": "Open a conversation", "operationId": "openConversation",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.OpenConversationRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Conversation"}},
                    "400": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "tags": ["Conversations"], "summary": "Get a conversation", "operationId": "getConversation",
                "parameters": [
                    {"$ref": "#/parameters/id"},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "headers": {"ETag": {"type": "string"}}, "schema": {"$ref": "#/definitions/services.ConversationView"}},
                    "304": {"description": "Not Modified"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/conversations/{id}/messages": {
            "post": {
                "tags": ["Conversations"], "summary": "Send a message", "operationId": "sendMessage",
                "parameters": [
                    {"$ref": "#/parameters/id"},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.SendMessageResponse"}},
                    "200": {"description": "Idempotent replay", "headers": {"Idempotency-Replayed": {"type": "string"}}, "schema": {"$ref": "#/definitions/handlers.SendMessageResponse"}},
                    "400": {"$ref": "#/responses/error"},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"},
                    "503": {"$ref": "#/responses/error"}
                }
            }
        },
        "/conversations/{id}/read": {
            "post": {
                "tags": ["Conversations"], "summary": "Mark a conversation read", "operationId": "markConversationRead",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/conversations/{id}/hide": {
            "post": {
                "tags": ["Conversations"], "summary": "Hide a conversation", "operationId": "hideConversation",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "boolean"}}},
                    "403": {"$ref": "#/responses/error"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"], "summary": "List notifications", "operationId": "listNotifications",
                "parameters": [
                    {"type": "boolean", "name": "unread", "in": "query"},
                    {"$ref": "#/parameters/page"}, {"$ref": "#/parameters/pageSize"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListNotificationsResponse"}}}
            }
        },
        "/notifications/unread-count": {
            "get": {
                "tags": ["Notifications"], "summary": "Count unread notifications", "operationId": "unreadNotifications",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UnreadCountResponse"}}}
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"], "summary": "Mark a notification read", "operationId": "markNotificationRead",
                "parameters": [{"$ref": "#/parameters/id"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.NotificationView"}},
                    "403": {"$ref": "#/responses/error"},
                    "404": {"$ref": "#/responses/error"}
                }
            }
        },
        "/notifications/read-all": {
            "post": {
                "tags": ["Notifications"], "summary": "Mark every notification read", "operationId": "markAllNotificationsRead",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}}}
            }
        },
        "/realtime": {
            "get": {
                "tags": ["Realtime"], "summary": "Realtime event stream", "operationId": "realtime",
                "description": "Websocket upgrade streaming message, message.read and notification envelopes.",
                "parameters": [{"type": "string", "description": "JWT when headers cannot be set", "name": "token", "in": "query"}],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"$ref": "#/responses/error"},
                    "503": {"$ref": "#/responses/error"}
                }
            }
        }
    },
    "parameters": {
        "id": {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
        "page": {"type": "integer", "minimum": 1, "default": 1, "name": "page", "in": "query"},
        "pageSize": {"type": "integer", "minimum": 1, "maximum": 100, "default": 20, "name": "page_size", "in": "query"}
    },
    "responses": {
        "error": {"description": "Error envelope", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "duplicate_pending"},
                "message": {"type": "string"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"}, "page_size": {"type": "integer"}, "total": {"type": "integer"},
                "total_pages": {"type": "integer"}, "has_next": {"type": "boolean"}
            }
        },
        "domain.Listing": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "owner_id": {"type": "string"}, "title": {"type": "string"},
                "description": {"type": "string"}, "slug": {"type": "string"},
                "intent": {"type": "string", "enum": ["give","swap","sell","request","rehome"]},
                "status": {"type": "string", "enum": ["active","pending","completed","expired","removed"]},
                "expires_at": {"type": "string", "format": "date-time"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Agreement": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "listing_id": {"type": "string"}, "proposer_id": {"type": "string"},
                "counterparty_id": {"type": "string"}, "conversation_id": {"type": "string"},
                "status": {"type": "string", "enum": ["pending","accepted","declined","withdrawn"]},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"},
                "resolved_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "listing_id": {"type": "string"}, "agreement_id": {"type": "string"},
                "from_party": {"type": "string"}, "to_party": {"type": "string"},
                "completed_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Conversation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "participant_a": {"type": "string"}, "participant_b": {"type": "string"},
                "listing_id": {"type": "string"},
                "last_activity_at": {"type": "string", "format": "date-time"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "conversation_id": {"type": "string"}, "sender_id": {"type": "string"},
                "recipient_id": {"type": "string"}, "body": {"type": "string"}, "read": {"type": "boolean"},
                "read_at": {"type": "string", "format": "date-time"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.CreateListingRequest": {
            "type": "object", "required": ["title", "intent"],
            "properties": {
                "title": {"type": "string", "maxLength": 255, "example": "Oak desk"},
                "description": {"type": "string", "maxLength": 5000},
                "intent": {"type": "string", "enum": ["give","swap","sell","request","rehome"]}
            }
        },
        "handlers.ListingStatusRequest": {
            "type": "object", "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["active","pending","removed"]}}
        },
        "handlers.ListListingsResponse": {
            "type": "object",
            "properties": {
                "listings": {"type": "array", "items": {"$ref": "#/definitions/domain.Listing"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ProposeRequest": {
            "type": "object", "required": ["listingId", "counterpartyId"],
            "properties": {"listingId": {"type": "string"}, "counterpartyId": {"type": "string"}}
        },
        "handlers.ProposeResponse": {
            "type": "object",
            "properties": {"agreementId": {"type": "string"}, "agreement": {"$ref": "#/definitions/services.AgreementView"}}
        },
        "handlers.ResolveRequest": {
            "type": "object", "required": ["outcome"],
            "properties": {"outcome": {"type": "string", "enum": ["accept","decline","withdraw"]}}
        },
        "services.AgreementView": {
            "type": "object",
            "properties": {"agreement": {"$ref": "#/definitions/domain.Agreement"}, "listing": {"$ref": "#/definitions/domain.Listing"}}
        },
        "services.ResolveResult": {
            "type": "object",
            "properties": {
                "agreement": {"$ref": "#/definitions/domain.Agreement"},
                "listing": {"$ref": "#/definitions/domain.Listing"},
                "transaction": {"$ref": "#/definitions/domain.Transaction"}
            }
        },
        "handlers.ListAgreementsResponse": {
            "type": "object",
            "properties": {
                "agreements": {"type": "array", "items": {"$ref": "#/definitions/services.AgreementView"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListTransactionsResponse": {
            "type": "object",
            "properties": {
                "transactions": {"type": "array", "items": {"type": "object", "properties": {
                    "transaction": {"$ref": "#/definitions/domain.Transaction"},
                    "listing": {"$ref": "#/definitions/domain.Listing"}
                }}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.OpenConversationRequest": {
            "type": "object", "required": ["userId"],
            "properties": {"userId": {"type": "string"}, "listingId": {"type": "string"}}
        },
        "handlers.SendMessageRequest": {
            "type": "object",
            "properties": {"text": {"type": "string", "example": "Is the desk still available?"}}
        },
        "handlers.SendMessageResponse": {
            "type": "object",
            "properties": {"message": {"$ref": "#/definitions/domain.Message"}}
        },
        "handlers.ListConversationsResponse": {
            "type": "object",
            "properties": {
                "conversations": {"type": "array", "items": {"$ref": "#/definitions/domain.Conversation"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "services.ConversationView": {
            "type": "object",
            "properties": {
                "conversation": {"$ref": "#/definitions/domain.Conversation"},
                "participants": {"type": "array", "items": {"type": "string"}},
                "listing": {"$ref": "#/definitions/domain.Listing"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}
            }
        },
        "handlers.MarkReadResponse": {
            "type": "object",
            "properties": {"updated": {"type": "integer"}}
        },
        "services.NotificationView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "type": {"type": "string", "example": "agreement.proposed"},
                "actor_id": {"type": "string"}, "payload": {"type": "object"}, "link": {"type": "string"},
                "read": {"type": "boolean"},
                "read_at": {"type": "string", "format": "date-time"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.ListNotificationsResponse": {
            "type": "object",
            "properties": {
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/services.NotificationView"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.UnreadCountResponse": {
            "type": "object",
            "properties": {"unread": {"type": "integer"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "\"Bearer <JWT>\" with the user id in sub.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Swap exchange API",
	Description:      "Listings, agreements, completed exchanges, conversations and notifications for a peer-to-peer marketplace.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

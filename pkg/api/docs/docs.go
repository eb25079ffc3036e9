// Package docs holds the OpenAPI description served under /swagger/.
// Keep it in sync with the swag annotations in package api (swag init -g docs.go -d pkg/api -o pkg/api/docs).
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/prediction-market/callindexor"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "https://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "API health status", "schema": {"$ref": "#/definitions/api.HealthResponse"}}
                }
            }
        },
        "/indexer/start": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Indexer"],
                "summary": "Start indexing",
                "responses": {
                    "200": {"description": "Indexer status after start", "schema": {"$ref": "#/definitions/api.LifecycleResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Indexer"],
                "summary": "Stop indexing",
                "responses": {
                    "200": {"description": "Indexer status after stop", "schema": {"$ref": "#/definitions/api.LifecycleResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Indexer"],
                "summary": "Indexer status",
                "responses": {
                    "200": {"description": "Indexer status", "schema": {"$ref": "#/definitions/orchestrator.Status"}}
                }
            }
        },
        "/indexer/{chain}/events/type/{eventType}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Events by type",
                "parameters": [
                    {"$ref": "#/parameters/chain"},
                    {"type": "string", "description": "Event type, e.g. CallCreated or stake_added", "name": "eventType", "in": "path", "required": true},
                    {"$ref": "#/parameters/limit"},
                    {"$ref": "#/parameters/offset"}
                ],
                "responses": {
                    "200": {"description": "Events with pagination info", "schema": {"$ref": "#/definitions/api.EventsResponse"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/{chain}/events/contract/{contractId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Events by contract",
                "parameters": [
                    {"$ref": "#/parameters/chain"},
                    {"type": "string", "description": "Contract address (base) or contract id (stellar)", "name": "contractId", "in": "path", "required": true},
                    {"$ref": "#/parameters/limit"},
                    {"$ref": "#/parameters/offset"}
                ],
                "responses": {
                    "200": {"description": "Events with pagination info", "schema": {"$ref": "#/definitions/api.EventsResponse"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/{chain}/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Chain statistics",
                "parameters": [{"$ref": "#/parameters/chain"}],
                "responses": {
                    "200": {"description": "Chain statistics", "schema": {"$ref": "#/definitions/store.Stats"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/{chain}/calls": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "List calls",
                "parameters": [
                    {"$ref": "#/parameters/chain"},
                    {"enum": ["active", "resolved_yes", "resolved_no"], "type": "string", "description": "Call status", "name": "status", "in": "query"},
                    {"$ref": "#/parameters/limit"},
                    {"$ref": "#/parameters/offset"}
                ],
                "responses": {
                    "200": {"description": "Calls with pagination info", "schema": {"$ref": "#/definitions/api.CallsResponse"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/indexer/{chain}/calls/{callId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Get call",
                "parameters": [
                    {"$ref": "#/parameters/chain"},
                    {"type": "string", "description": "On-chain call id", "name": "callId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Call", "schema": {"$ref": "#/definitions/api.CallView"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Call not found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "parameters": {
        "chain": {"enum": ["base", "stellar"], "type": "string", "description": "Chain", "name": "chain", "in": "path", "required": true},
        "limit": {"type": "integer", "default": 100, "description": "Maximum number of rows to return", "name": "limit", "in": "query"},
        "offset": {"type": "integer", "default": 0, "description": "Number of rows to skip", "name": "offset", "in": "query"}
    },
    "definitions": {
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "is_running": {"type": "boolean"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "api.LifecycleResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "status": {"$ref": "#/definitions/orchestrator.Status"}
            }
        },
        "api.PaginationResult": {
            "type": "object",
            "properties": {
                "has_more": {"type": "boolean"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "api.EventView": {
            "type": "object",
            "properties": {
                "chain": {"type": "string"},
                "contract_id": {"type": "string"},
                "created_at": {"type": "string"},
                "event_data": {"type": "object"},
                "event_sequence": {"type": "integer"},
                "event_type": {"type": "string"},
                "ledger_height": {"type": "integer"},
                "tx_hash": {"type": "string"}
            }
        },
        "api.EventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/api.EventView"}},
                "pagination": {"$ref": "#/definitions/api.PaginationResult"}
            }
        },
        "api.CallView": {
            "type": "object",
            "properties": {
                "call_onchain_id": {"type": "string"},
                "chain": {"type": "string"},
                "contract_id": {"type": "string"},
                "created_at": {"type": "string"},
                "creator_wallet": {"type": "string"},
                "end_ts": {"type": "string"},
                "final_price": {"type": "string"},
                "ipfs_cid": {"type": "string"},
                "outcome": {"type": "boolean"},
                "pair_id": {"type": "string"},
                "stake_amount": {"type": "string"},
                "stake_token": {"type": "string"},
                "start_ts": {"type": "string"},
                "status": {"type": "string"},
                "token_address": {"type": "string"},
                "total_stake_no": {"type": "string"},
                "total_stake_yes": {"type": "string"},
                "tx_hash": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "api.CallsResponse": {
            "type": "object",
            "properties": {
                "calls": {"type": "array", "items": {"$ref": "#/definitions/api.CallView"}},
                "pagination": {"$ref": "#/definitions/api.PaginationResult"}
            }
        },
        "indexer.Status": {
            "type": "object",
            "properties": {
                "last_cycle_at": {"type": "string"},
                "last_error": {"type": "string"},
                "next_cursor": {"type": "integer"},
                "skipped_cycles": {"type": "integer"},
                "state": {"type": "string", "enum": ["STOPPED", "INITIALIZED", "RUNNING"]}
            }
        },
        "orchestrator.Status": {
            "type": "object",
            "properties": {
                "base_enabled": {"type": "boolean"},
                "chains": {"type": "object", "additionalProperties": {"$ref": "#/definitions/indexer.Status"}},
                "is_running": {"type": "boolean"},
                "stellar_enabled": {"type": "boolean"}
            }
        },
        "store.Stats": {
            "type": "object",
            "properties": {
                "events_by_type": {"type": "object", "additionalProperties": {"type": "integer"}},
                "last_indexed_height": {"type": "integer"},
                "total_events": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "CallIndexor API",
	Description:      "Lifecycle control and read access for the prediction-market call indexer",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

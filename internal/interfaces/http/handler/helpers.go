package handler

import "github.com/erp/stockledger/internal/interfaces/http/dto"

// PageRequest is embedded by list queries
type PageRequest = dto.PageRequest

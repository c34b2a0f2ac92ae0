package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/telebill/call-billing/internal/model"
	"github.com/telebill/call-billing/internal/service/pricing"
)

type startCallReq struct {
	FromCustomerID int64 `json:"from_customer_id"`
	ToCustomerID   int64 `json:"to_customer_id"`
}

type callResp struct {
	ID             int64      `json:"id"`
	FromCustomerID int64      `json:"from_customer_id"`
	ToCustomerID   int64      `json:"to_customer_id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Duration       float64    `json:"duration"`
	Charge         float64    `json:"charge"`
	Status         string     `json:"status"`
}

func toCallResp(c *model.Call) callResp {
	return callResp{
		ID:             c.ID,
		FromCustomerID: c.FromCustomerID,
		ToCustomerID:   c.ToCustomerID,
		StartedAt:      c.StartedAt,
		FinishedAt:     c.FinishedAt,
		Duration:       c.Duration,
		Charge:         c.Charge,
		Status:         c.Status.String(),
	}
}

func startCallHandler(svc *pricing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req startCallReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.FromCustomerID <= 0 || req.ToCustomerID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		call, err := svc.Start(c.Request().Context(), req.FromCustomerID, req.ToCustomerID)
		if err != nil {
			switch {
			case errors.Is(err, pricing.ErrSameCustomer),
				errors.Is(err, pricing.ErrCustomerBusy),
				errors.Is(err, pricing.ErrNoSuchCustomer),
				errors.Is(err, pricing.ErrNoPhoneNumber):
				return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
			}
			log.Errorf("start call failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, toCallResp(call))
	}
}

func finishCallHandler(svc *pricing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad call id"})
		}

		call, err := svc.Finish(c.Request().Context(), id)
		if err != nil {
			var pricingErr *pricing.PricingDataMissingError
			var discountErr *pricing.DiscountDataMissingError
			switch {
			case errors.Is(err, pricing.ErrCallNotFound):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "no such call"})
			case errors.Is(err, pricing.ErrAlreadyFinished):
				return c.JSON(http.StatusConflict, map[string]string{"error": "call is already finished"})
			case errors.As(err, &pricingErr):
				return c.JSON(http.StatusUnprocessableEntity, map[string]any{
					"error":       "pricing data missing",
					"customer_id": pricingErr.CustomerID,
				})
			case errors.As(err, &discountErr):
				return c.JSON(http.StatusUnprocessableEntity, map[string]any{
					"error":       "discount data missing",
					"customer_id": discountErr.CustomerID,
				})
			}
			log.Errorf("finish call failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, toCallResp(call))
	}
}

func getCallHandler(svc *pricing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad call id"})
		}

		call, err := svc.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, pricing.ErrCallNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "no such call"})
			}
			log.Errorf("get call failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, toCallResp(call))
	}
}

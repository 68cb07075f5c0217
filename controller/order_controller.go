package controller

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Capstone-2-FMSuggestion-System/backend/checkout"
	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

type OrderController struct {
	Store   store.Store
	Service *checkout.Service
	Redis   *redis.Client
	ListTTL time.Duration
}

func NewOrderController(st store.Store, svc *checkout.Service, rdb *redis.Client, listTTL time.Duration) *OrderController {
	return &OrderController{Store: st, Service: svc, Redis: rdb, ListTTL: listTTL}
}

// List serves the user's orders through the read cache. Entries expire on
// their own; the invalidator just shortens the staleness window.
func (oc *OrderController) List(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)
	key := fmt.Sprintf("orders:user:%d", userID)

	if cached, err := oc.Redis.Get(c.Context(), key).Result(); err == nil {
		c.Set("Content-Type", "application/json")
		return c.SendString(cached)
	}

	orders, err := oc.Store.ListOrdersByUser(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if orders == nil {
		orders = []model.Order{}
	}

	payload, err := json.Marshal(orders)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	if err := oc.Redis.Set(c.Context(), key, payload, oc.ListTTL).Err(); err != nil {
		log.Printf("caching %s failed: %v", key, err)
	}

	c.Set("Content-Type", "application/json")
	return c.Send(payload)
}

func (oc *OrderController) Cancel(c *fiber.Ctx) error {
	orderID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	userID := c.Locals("user_id").(uint)

	if err := oc.Service.CancelOrder(c.Context(), uint(orderID), userID); err != nil {
		return c.Status(errToStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "order cancelled"})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/ac"
	"backend/internal/billing"
	"backend/internal/db"
)

const timeLayout = "2006-01-02 15:04:05"

// DeskHandler 前台接口：入住、结账与历史账单查询
type DeskHandler struct {
	svc      *ac.Service
	bills    *db.BillRepository
	sessions *db.SessionRepository
}

// NewDeskHandler bills/sessions 为 nil 时历史账单查询返回空列表
func NewDeskHandler(svc *ac.Service, bills *db.BillRepository, sessions *db.SessionRepository) *DeskHandler {
	return &DeskHandler{svc: svc, bills: bills, sessions: sessions}
}

type checkInRequest struct {
	RoomID  string `json:"room_id" binding:"required"`
	GuestID string `json:"guest_id" binding:"required"`
}

type checkOutRequest struct {
	RoomID string `json:"room_id" binding:"required"`
}

// CheckIn POST /api/checkin/
func (h *DeskHandler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.CheckIn(req.RoomID, req.GuestID); err != nil {
		failFrom(c, err)
		return
	}
	ok(c, gin.H{"room_id": req.RoomID})
}

// CheckOut POST /api/checkout/ 返回账单明细
func (h *DeskHandler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	bill, err := h.svc.CheckOut(req.RoomID)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, gin.H{"bill": billView(bill)})
}

// History GET /api/bills/:id/ 房间历史账单，最近的在前
func (h *DeskHandler) History(c *gin.Context) {
	roomID := c.Param("id")
	if h.bills == nil {
		ok(c, gin.H{"bills": []gin.H{}})
		return
	}

	records, err := h.bills.GetBillsByRoom(roomID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]gin.H, 0, len(records))
	for _, rec := range records {
		view := gin.H{
			"room_id":           rec.RoomID,
			"checkin_time":      rec.CheckinTime.Format(timeLayout),
			"checkout_time":     rec.CheckoutTime.Format(timeLayout),
			"days":              rec.Days,
			"daily_rate":        rec.DailyRate,
			"accommodation_fee": billing.Amount(rec.AccommodationFee),
			"ac_fee":            billing.Amount(rec.ACFee),
			"total":             billing.Amount(rec.Total),
		}
		if h.sessions != nil {
			if recs, err := h.sessions.GetSessionsByBill(rec.ID); err == nil {
				details := make([]gin.H, 0, len(recs))
				for _, s := range recs {
					details = append(details, gin.H{
						"start":    s.StartTime.Format(timeLayout),
						"end":      s.EndTime.Format(timeLayout),
						"mode":     s.Mode,
						"fan":      s.FanSpeed,
						"duration": s.DurationSec,
						"fee":      billing.Amount(s.Fee),
					})
				}
				view["ac_details"] = details
			}
		}
		views = append(views, view)
	}
	ok(c, gin.H{"bills": views})
}

func billView(b *billing.Bill) gin.H {
	details := make([]gin.H, 0, len(b.Details))
	for _, s := range b.Details {
		details = append(details, gin.H{
			"start":    s.Start.Format(timeLayout),
			"end":      s.End.Format(timeLayout),
			"mode":     string(s.Mode),
			"fan":      string(s.FanSpeed),
			"duration": int64(s.End.Sub(s.Start).Seconds()),
			"fee":      s.Fee,
		})
	}
	return gin.H{
		"room_id":           b.RoomID,
		"checkin_time":      b.CheckinTime.Format(timeLayout),
		"checkout_time":     b.CheckoutTime.Format(timeLayout),
		"days":              b.Days,
		"daily_rate":        b.DailyRate,
		"accommodation_fee": b.AccommodationFee,
		"ac_fee":            b.ACFee,
		"total":             b.Total,
		"ac_details":        details,
	}
}

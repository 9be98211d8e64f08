package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
)

type ProgramHandler struct {
	service ProgramServiceInterface
}

func NewProgramHandler(s ProgramServiceInterface) *ProgramHandler {
	return &ProgramHandler{service: s}
}

type CreateCategoryRequest struct {
	Name       string `json:"name" validate:"required" example:"S席"`
	Price      int64  `json:"price" validate:"gte=0" example:"12000"`
	TotalCount int    `json:"total_count,omitempty" example:"500"`
	HasSeatMap bool   `json:"has_seat_map" example:"true"`
	Rows       int    `json:"rows,omitempty" example:"20"`
	Cols       int    `json:"cols,omitempty" example:"25"`
}

type CreateProgramRequest struct {
	Name        string                  `json:"name" validate:"required" example:"年末特別公演"`
	Description string                  `json:"description" example:"説明"`
	Venue       string                  `json:"venue" example:"東京ドーム"`
	ShowAt      time.Time               `json:"show_at" validate:"required"`
	SaleStartAt time.Time               `json:"sale_start_at" validate:"required"`
	SaleEndAt   time.Time               `json:"sale_end_at" validate:"required"`
	ShardCount  int                     `json:"shard_count,omitempty" example:"4"`
	Categories  []CreateCategoryRequest `json:"categories,omitempty"`
}

type ProgramResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Venue       string    `json:"venue,omitempty"`
	ShowAt      time.Time `json:"show_at"`
	SaleStartAt time.Time `json:"sale_start_at"`
	SaleEndAt   time.Time `json:"sale_end_at"`
	OnSale      bool      `json:"on_sale"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryResponse struct {
	ID         string `json:"id"`
	ProgramID  string `json:"program_id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	TotalCount int    `json:"total_count"`
	HasSeatMap bool   `json:"has_seat_map"`
}

type SeatResponse struct {
	ID     string `json:"id"`
	RowNum int    `json:"row_num"`
	ColNum int    `json:"col_num"`
	Status string `json:"status"`
	Price  int64  `json:"price"`
}

func toProgramResponse(p *program.Program) ProgramResponse {
	return ProgramResponse{
		ID: p.ID, Name: p.Name, Description: p.Description, Venue: p.Venue,
		ShowAt: p.ShowAt, SaleStartAt: p.SaleStartAt, SaleEndAt: p.SaleEndAt,
		OnSale: p.IsOnSale(), CreatedAt: p.CreatedAt,
	}
}

func toCategoryResponse(c *program.TicketCategory) CategoryResponse {
	return CategoryResponse{
		ID: c.ID, ProgramID: c.ProgramID, Name: c.Name,
		Price: c.Price, TotalCount: c.TotalCount, HasSeatMap: c.HasSeatMap,
	}
}

func toSeatResponse(s *seat.Seat) SeatResponse {
	return SeatResponse{
		ID: s.ID, RowNum: s.RowNum, ColNum: s.ColNum,
		Status: string(s.Status), Price: s.Price,
	}
}

func toCategoryInput(req CreateCategoryRequest) application.CreateCategoryInput {
	return application.CreateCategoryInput{
		Name: req.Name, Price: req.Price, TotalCount: req.TotalCount,
		HasSeatMap: req.HasSeatMap, Rows: req.Rows, Cols: req.Cols,
	}
}

// Create godoc
// @Summary 公演を作成
// @Description 公演とチケット種別、座席をまとめて作成します
// @Tags programs
// @Accept json
// @Produce json
// @Param request body CreateProgramRequest true "公演情報"
// @Success 201 {object} ProgramResponse
// @Failure 400 {object} map[string]string
// @Router /programs [post]
func (h *ProgramHandler) Create(c echo.Context) error {
	var req CreateProgramRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	categories := make([]application.CreateCategoryInput, len(req.Categories))
	for i, cr := range req.Categories {
		categories[i] = toCategoryInput(cr)
	}
	p, err := h.service.CreateProgram(c.Request().Context(), application.CreateProgramInput{
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		ShowAt:      req.ShowAt,
		SaleStartAt: req.SaleStartAt,
		SaleEndAt:   req.SaleEndAt,
		ShardCount:  req.ShardCount,
		Categories:  categories,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toProgramResponse(p))
}

// List godoc
// @Summary 公演一覧を取得
// @Tags programs
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ProgramResponse
// @Router /programs [get]
func (h *ProgramHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	programs, err := h.service.ListPrograms(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]ProgramResponse, len(programs))
	for i, p := range programs {
		resp[i] = toProgramResponse(p)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary 公演を取得
// @Tags programs
// @Produce json
// @Param id path string true "公演ID"
// @Success 200 {object} ProgramResponse
// @Failure 404 {object} map[string]string
// @Router /programs/{id} [get]
func (h *ProgramHandler) GetByID(c echo.Context) error {
	p, err := h.service.GetProgram(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProgramResponse(p))
}

type UpdateProgramRequest struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	ShowAt      time.Time `json:"show_at" validate:"required"`
	SaleStartAt time.Time `json:"sale_start_at" validate:"required"`
	SaleEndAt   time.Time `json:"sale_end_at" validate:"required"`
}

// Update godoc
// @Summary 公演を更新
// @Tags programs
// @Accept json
// @Produce json
// @Param id path string true "公演ID"
// @Param request body UpdateProgramRequest true "公演情報"
// @Success 200 {object} ProgramResponse
// @Failure 404 {object} map[string]string
// @Router /programs/{id} [put]
func (h *ProgramHandler) Update(c echo.Context) error {
	var req UpdateProgramRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.service.UpdateProgram(c.Request().Context(), application.UpdateProgramInput{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		ShowAt:      req.ShowAt,
		SaleStartAt: req.SaleStartAt,
		SaleEndAt:   req.SaleEndAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProgramResponse(p))
}

// Delete godoc
// @Summary 公演を削除
// @Description 公演と座席を削除し、キャッシュを全階層から破棄します
// @Tags programs
// @Param id path string true "公演ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /programs/{id} [delete]
func (h *ProgramHandler) Delete(c echo.Context) error {
	if err := h.service.DeleteProgram(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddCategory godoc
// @Summary チケット種別を追加
// @Tags programs
// @Accept json
// @Produce json
// @Param id path string true "公演ID"
// @Param request body CreateCategoryRequest true "チケット種別情報"
// @Success 201 {object} CategoryResponse
// @Failure 404 {object} map[string]string
// @Router /programs/{id}/categories [post]
func (h *ProgramHandler) AddCategory(c echo.Context) error {
	var req CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	cat, err := h.service.AddCategory(c.Request().Context(), c.Param("id"), toCategoryInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toCategoryResponse(cat))
}

// GetCategories godoc
// @Summary 公演のチケット種別一覧を取得
// @Tags programs
// @Produce json
// @Param id path string true "公演ID"
// @Success 200 {array} CategoryResponse
// @Router /programs/{id}/categories [get]
func (h *ProgramHandler) GetCategories(c echo.Context) error {
	categories, err := h.service.GetCategories(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	resp := make([]CategoryResponse, len(categories))
	for i, cat := range categories {
		resp[i] = toCategoryResponse(cat)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSeats godoc
// @Summary チケット種別の座席一覧を取得
// @Description 3層キャッシュ経由で座席を取得します
// @Tags programs
// @Produce json
// @Param id path string true "公演ID"
// @Param categoryID path string true "チケット種別ID"
// @Success 200 {array} SeatResponse
// @Router /programs/{id}/categories/{categoryID}/seats [get]
func (h *ProgramHandler) GetSeats(c echo.Context) error {
	seats, err := h.service.GetSeats(c.Request().Context(), c.Param("id"), c.Param("categoryID"))
	if err != nil {
		return err
	}
	resp := make([]SeatResponse, len(seats))
	for i, se := range seats {
		resp[i] = toSeatResponse(se)
	}
	return c.JSON(http.StatusOK, resp)
}

type RemainingResponse struct {
	Remaining int `json:"remaining" example:"42"`
}

// GetRemaining godoc
// @Summary チケット種別の残数を取得
// @Tags programs
// @Produce json
// @Param id path string true "公演ID"
// @Param categoryID path string true "チケット種別ID"
// @Success 200 {object} RemainingResponse
// @Router /programs/{id}/categories/{categoryID}/remaining [get]
func (h *ProgramHandler) GetRemaining(c echo.Context) error {
	remaining, err := h.service.GetRemaining(c.Request().Context(), c.Param("id"), c.Param("categoryID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RemainingResponse{Remaining: remaining})
}

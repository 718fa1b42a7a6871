package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// respondStoreError maps store errors onto status codes.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrEntityNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case core.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// dateParam reads and checks the date query parameter.
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if _, err := core.ParseDate(date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := core.ParseDate(date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	respondJSON(w, http.StatusOK, s.store.Dashboard(date))
}

func (s *Server) listFood(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	var meal models.MealType
	if raw := r.URL.Query().Get("mealType"); raw != "" {
		mt, err := models.ParseMealType(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		meal = mt
	}
	respondJSON(w, http.StatusOK, s.store.FoodLogs(date, meal))
}

func checkFoodForm(form *models.FoodLogForm) error {
	if _, err := core.ParseDate(form.Date); err != nil {
		return core.Invalid("date", "must be YYYY-MM-DD")
	}
	mt, err := models.ParseMealType(string(form.MealType))
	if err != nil {
		return core.Invalid("mealType", "%v", err)
	}
	form.MealType = mt
	if len(form.Items) == 0 {
		return core.Invalid("items", "at least one item is required")
	}
	for _, it := range form.Items {
		if err := checkItem(it); err != nil {
			return err
		}
	}
	return nil
}

func checkItem(it models.FoodItem) error {
	if strings.TrimSpace(it.Name) == "" {
		return core.Invalid("name", "is required")
	}
	if it.Calories < 0 || it.Protein < 0 || it.Carbs < 0 || (it.Fats != nil && *it.Fats < 0) {
		return core.Invalid(it.Name, "nutrients must not be negative")
	}
	return nil
}

func (s *Server) createFood(w http.ResponseWriter, r *http.Request) {
	var form models.FoodLogForm
	if !decode(w, r, &form) {
		return
	}
	if err := checkFoodForm(&form); err != nil {
		respondStoreError(w, err)
		return
	}
	l := s.store.CreateFood(form)
	s.log.Debug().Str("id", l.ID).Str("date", l.Date).Msg("food log created")
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) updateFood(w http.ResponseWriter, r *http.Request) {
	var form models.FoodLogForm
	if !decode(w, r, &form) {
		return
	}
	if err := checkFoodForm(&form); err != nil {
		respondStoreError(w, err)
		return
	}
	l, err := s.store.UpdateFood(chi.URLParam(r, "id"), form)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) deleteFood(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFood(chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var item models.FoodItem
	if !decode(w, r, &item) {
		return
	}
	if err := checkItem(item); err != nil {
		respondStoreError(w, err)
		return
	}
	l, err := s.store.AddItem(chi.URLParam(r, "id"), item)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var item models.FoodItem
	if !decode(w, r, &item) {
		return
	}
	if err := checkItem(item); err != nil {
		respondStoreError(w, err)
		return
	}
	l, err := s.store.UpdateItem(chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), item)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.DeleteItem(chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) listExercise(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.store.ExerciseLogs(date))
}

func (s *Server) createExercise(w http.ResponseWriter, r *http.Request) {
	var form models.ExerciseLogForm
	if !decode(w, r, &form) {
		return
	}
	if _, err := core.ParseDate(form.Date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if strings.TrimSpace(form.ExerciseName) == "" {
		respondError(w, http.StatusBadRequest, "exerciseName is required")
		return
	}
	in, err := models.ParseIntensity(string(form.Intensity))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	form.Intensity = in
	if form.DurationMinutes <= 0 || form.DurationMinutes > core.MaxExerciseMinutes {
		respondError(w, http.StatusBadRequest, "durationMinutes out of range")
		return
	}
	respondJSON(w, http.StatusCreated, s.store.CreateExercise(form))
}

func (s *Server) updateExercise(w http.ResponseWriter, r *http.Request) {
	var upd models.ExerciseUpdate
	if !decode(w, r, &upd) {
		return
	}
	upd.ID = chi.URLParam(r, "id")
	if upd.Intensity != "" {
		in, err := models.ParseIntensity(string(upd.Intensity))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Intensity = in
	}
	if upd.DurationMinutes < 0 || upd.DurationMinutes > core.MaxExerciseMinutes {
		respondError(w, http.StatusBadRequest, "durationMinutes out of range")
		return
	}
	l, err := s.store.UpdateExercise(upd)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) deleteExercise(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteExercise(chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exerciseTypes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.store.ExerciseTypes())
}

func (s *Server) listWater(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.store.WaterLogs(date))
}

func (s *Server) createWater(w http.ResponseWriter, r *http.Request) {
	var form models.WaterLogForm
	if !decode(w, r, &form) {
		return
	}
	if _, err := core.ParseDate(form.Date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if form.AmountMl <= 0 || form.AmountMl > core.MaxWaterMl {
		respondError(w, http.StatusBadRequest, "amountMl out of range")
		return
	}
	respondJSON(w, http.StatusCreated, s.store.CreateWater(form))
}

func (s *Server) deleteWater(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteWater(chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Messages(chi.URLParam(r, "id")))
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if len([]rune(content)) > core.MaxMessageLength {
		respondError(w, http.StatusBadRequest, "content is too long")
		return
	}
	respondJSON(w, http.StatusCreated, s.store.Send(chi.URLParam(r, "id"), req.Content))
}

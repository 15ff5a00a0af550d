// Package cost реализует расчёт стоимости отправлений по статической тарифной таблице.
package cost

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeninmail/hermes-system/internal/model"
)

// ErrQuoteRequired возвращается для отправлений, стоимость которых не может быть
// рассчитана автоматически и требует ручной оценки. Это не ошибка валидации:
// вызывающая сторона обязана различать эти два исхода.
var ErrQuoteRequired = errors.New("custom quote required")

// ValidationError описывает некорректные входные данные расчёта стоимости.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Region обозначает тарифный регион назначения.
type Region string

const (
	RegionCA   Region = "CA"
	RegionUS   Region = "US"
	RegionINTL Region = "INT"
)

// MaxBubblePacketGrams задаёт максимальный вес бабл-пакета.
// Письма lettermail физически ограничены 30 граммами и конвертом
// 245×156×5 мм; в коде это ограничение не проверяется.
const MaxBubblePacketGrams = 500

// StampRegion классифицирует страну назначения по тарифному региону.
// Сравнение нечувствительно к регистру и пробелам по краям; любая
// нераспознанная строка считается международным направлением, а не ошибкой.
func StampRegion(country string) Region {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "canada":
		return RegionCA
	case "united states", "usa", "us", "united states of america":
		return RegionUS
	}
	return RegionINTL
}

// Calculate возвращает стоимость отправления в центах.
// Для parcel всегда возвращается ErrQuoteRequired. Вес обязателен для
// bubble_packet и parcel и игнорируется для lettermail.
func Calculate(mailType model.MailType, country string, weightGrams *int) (int64, error) {
	switch mailType {
	case model.MailTypeLettermail:
		return lettermailCost(country), nil

	case model.MailTypeBubblePacket:
		if weightGrams == nil {
			return 0, &ValidationError{Field: "weight_grams", Reason: "weight is required for bubble packets"}
		}
		return bubblePacketCost(country, *weightGrams)

	case model.MailTypeParcel:
		if weightGrams == nil {
			return 0, &ValidationError{Field: "weight_grams", Reason: "weight is required for parcels"}
		}
		return 0, ErrQuoteRequired

	default:
		return 0, &ValidationError{Field: "mail_type", Reason: fmt.Sprintf("unknown mail type: %s", mailType)}
	}
}

func lettermailCost(country string) int64 {
	switch StampRegion(country) {
	case RegionCA:
		return 175
	case RegionUS:
		return 200
	}
	return 350
}

func bubblePacketCost(country string, weightGrams int) (int64, error) {
	if weightGrams <= 0 {
		return 0, &ValidationError{Field: "weight_grams", Reason: "weight must be positive"}
	}
	if weightGrams > MaxBubblePacketGrams {
		return 0, &ValidationError{
			Field:  "weight_grams",
			Reason: "weight exceeds 500g for bubble packets, a parcel is needed",
		}
	}

	switch StampRegion(country) {
	case RegionCA:
		switch {
		case weightGrams <= 100:
			return 311, nil
		case weightGrams <= 200:
			return 451, nil
		case weightGrams <= 300:
			return 591, nil
		case weightGrams <= 400:
			return 662, nil
		default: // <= 500
			return 705, nil
		}

	case RegionUS:
		switch {
		case weightGrams <= 100:
			return 451, nil
		case weightGrams <= 200:
			return 716, nil
		default: // <= 500
			return 1338, nil
		}
	}

	switch {
	case weightGrams <= 100:
		return 808, nil
	case weightGrams <= 200:
		return 1338, nil
	default: // <= 500
		return 2580, nil
	}
}

// CentsToUSD переводит центы в доллары для отображения.
func CentsToUSD(cents int64) float64 {
	return float64(cents) / 100
}

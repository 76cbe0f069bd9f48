package validation

// luhnDoubled содержит результат удвоения цифры с вычитанием девяти.
var luhnDoubled = [10]int{0, 2, 4, 6, 8, 1, 3, 5, 7, 9}

// PassesLuhn проверяет контрольную цифру номера карты.
// Номер сначала нормализуется и должен пройти IsValidCardNumber.
func PassesLuhn(number string) bool {
	digits := NormalizeCardNumber(number)
	if !IsValidCardNumber(digits) {
		return false
	}

	sum := 0
	for pos := 0; pos < len(digits); pos++ {
		d := int(digits[len(digits)-1-pos] - '0')
		if pos%2 == 1 {
			d = luhnDoubled[d]
		}
		sum += d
	}
	return sum%10 == 0
}

package credential

import "crypto/subtle"

// * Verify сравнивает присланный ключ с сохраненным.
// Пустой сохраненный ключ означает, что пользователь вообще не может войти по ключу.
// Разница длин отсекается сразу: длина не считается секретом. При равных длинах
// сравнение идет за постоянное время, чтобы не утекали байты ключа.
func Verify(provided, stored string) bool {
	if stored == "" {
		return false
	}

	if len(provided) != len(stored) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}

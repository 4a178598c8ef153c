package scanning

import (
	"fmt"
	"strconv"
)

const systemInstruction = "You are a helpful assistant specialized in translating Japanese text to Spanish and converting JPY to EUR from images."

func formatRate(jpyPerEUR float64) string {
	return strconv.FormatFloat(jpyPerEUR, 'f', -1, 64)
}

// textConversionPrompt asks for a bare number so the reply can be parsed with strconv
func textConversionPrompt(amountJPY, jpyPerEUR float64) string {
	return fmt.Sprintf("Convert %s JPY to EUR. Use the exchange rate 1 EUR = %s JPY. "+
		"Respond with ONLY the numerical value, without currency symbols or any other text. "+
		"For example, if the result is 123.45, respond with '123.45'.",
		strconv.FormatFloat(amountJPY, 'f', -1, 64), formatRate(jpyPerEUR))
}

func imageAnalysisPrompt(jpyPerEUR float64) string {
	return fmt.Sprintf("Analyze the image. Identify all Japanese text and translate it to Spanish. "+
		"Also, find all prices listed in Japanese Yen (¥ or 円) and convert them to Euros (EUR). "+
		"Use an exchange rate of 1 EUR = %s JPY. Format your response according to the provided JSON schema. "+
		"If no text or prices are found, return an empty translation and an empty array for conversions.",
		formatRate(jpyPerEUR))
}

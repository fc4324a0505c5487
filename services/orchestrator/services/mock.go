// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"math/rand/v2"
	"strings"
)

// cannedAnswers are the bilingual demo answers of the mock pipeline.
var cannedAnswers = []string{
	"🌱 Analisi clorofilla media: 1,8 µg/L nel Golfo di Napoli. Valori nella norma per il periodo stagionale corrente.\n\n*Average chlorophyll analysis: 1.8 µg/L in the Gulf of Naples. Values within normal range for current seasonal period.*",
	"🌊 Temperatura superficiale del mare: 22,4°C. Trend in linea con le medie storiche ISPRA degli ultimi 30 anni.\n\n*Sea surface temperature: 22.4°C. Trend consistent with ISPRA historical averages over the last 30 years.*",
	"🐟 Monitoraggio biodiversità: avvistati 3 esemplari di Caretta caretta nelle acque del Santuario Pelagos. Stato di conservazione buono.\n\n*Biodiversity monitoring: 3 Caretta caretta specimens spotted in Pelagos Sanctuary waters. Good conservation status.*",
	"⚗️ Analisi qualità acque: pH 8,1, ossigeno disciolto 6,2 mg/L. Parametri chimico-fisici ottimali per l'ecosistema marino.\n\n*Water quality analysis: pH 8.1, dissolved oxygen 6.2 mg/L. Optimal chemical-physical parameters for marine ecosystem.*",
	"🌀 Correnti marine: velocità media 0,15 m/s direzione NE. Condizioni favorevoli per la dispersione dei nutrienti.\n\n*Marine currents: average speed 0.15 m/s NE direction. Favorable conditions for nutrient dispersion.*",
	"🔬 Campionamento microplastiche: rilevate 2,3 particelle/m³. Concentrazione sotto la soglia di allerta europea.\n\n*Microplastics sampling: 2.3 particles/m³ detected. Concentration below European alert threshold.*",
}

// mockKeywords maps keyword groups to cannedAnswers, first match wins.
var mockKeywords = []struct {
	answer   int
	keywords []string
}{
	{0, []string{"clorofilla", "chlorophyll"}},
	{1, []string{"temperatura", "temperature"}},
	{2, []string{"biodiversità", "fauna", "biodiversity"}},
	{3, []string{"qualità", "ph", "quality"}},
	{4, []string{"correnti", "current"}},
	{5, []string{"plastica", "plastic", "inquinamento"}},
}

const mockDemoNotice = "\n\n*Questa è una risposta dimostrativa. Per dati reali, configura PROTEO_LLM_API_KEY.\n" +
	"This is a demo response. For real data, configure PROTEO_LLM_API_KEY.*"

// MockResponder produces canned answers for the mock chat mode.
type MockResponder struct {
	intN func(n int) int
}

// NewMockResponder returns a responder. intN picks the default answer and
// defaults to math/rand/v2.IntN.
func NewMockResponder(intN func(n int) int) *MockResponder {
	if intN == nil {
		intN = rand.IntN
	}
	return &MockResponder{intN: intN}
}

// Respond returns the canned answer for the first matching keyword group,
// or a random one marked as a demonstration.
func (m *MockResponder) Respond(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range mockKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return cannedAnswers[rule.answer]
			}
		}
	}
	return "🐚 " + cannedAnswers[m.intN(len(cannedAnswers))] + mockDemoNotice
}

package enrich

import (
	"fmt"
	"strings"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

const summarizePrompt = `You will be provided with an abstract of a scientific paper. Compress this abstract in 1-2 sentences. Use very concise language usable as bullet points on a slide deck. Respond ONLY with your summary.`

const focusPrompt = `You will be provided with an abstract of a scientific paper. Assess the most applicable focus label based on the target audience, research focus, produced materials, and key outcomes.

%s

Respond with ONLY ONE of the labels above. Do not include anything else in your response.`

const attackTypePrompt = `You will be provided with an abstract of a scientific paper. Assess the most applicable attack type label based on the research focus, produced materials, and key outcomes.

%s

If you feel like none of the types apply, you can respond with "Other".

Respond with ONLY ONE of the labels above. Do not include anything else in your response.`

var attackDescriptions = map[paper.AttackType]string{
	paper.AttackEvasion: "Model Evasion is an adversarial attack aimed at bypassing or evading a machine learning model's defenses, " +
		"usually to make it produce incorrect outputs or behave in ways that favor the attacker. The adversary does not try to " +
		"break the model or extract data from it but manipulates its behavior to achieve a desired outcome, such as bypassing " +
		"detection systems or generating misleading predictions.",
	paper.AttackExtraction: "Model Extraction refers to an attack where an adversary tries to replicate or steal the functionality " +
		"of a machine learning model by querying it and using the outputs to build a copy of the original model. It focuses on " +
		"how the model behaves, its predictions and outputs, in order to create a surrogate or shadow model.",
	paper.AttackInversion: "Model inversion refers to techniques where an attacker tries to extract confidential information from a " +
		"trained model by interacting with it, often through extensive querying, to infer details about the data used to train it. " +
		"These details can range from personal information to the reconstruction of private or sensitive datasets.",
	paper.AttackPoisoning: "Model Poisoning is an attack where an adversary intentionally manipulates data in the training set to " +
		"impact how a model behaves. It targets the model during its training phase by introducing misleading, incorrect, or " +
		"adversarial data, often without detection.",
	paper.AttackPromptInjection: "Prompt injection is a vulnerability in Large Language Models where malicious users manipulate model " +
		"behavior by crafting inputs that override, bypass, or exploit how the model follows instructions, leading to data " +
		"leakage, misinformation, or system disruptions.",
	paper.AttackOther: "None of the above",
}

func buildFocusPrompt() string {
	var b strings.Builder
	for i, f := range paper.Focuses {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", f)
	}
	return fmt.Sprintf(focusPrompt, b.String())
}

func buildAttackTypePrompt() string {
	var b strings.Builder
	for i, a := range paper.AttackTypes {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- `%s`: %s", a, attackDescriptions[a])
	}
	return fmt.Sprintf(attackTypePrompt, b.String())
}

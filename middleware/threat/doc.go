// Package threat valida e higieniza o payload genérico antes de ele entrar no pipeline.
//
// Validate aplica, nesta ordem:
//
//   - tamanho serializado (PayloadTooLarge)
//   - profundidade de aninhamento (StructureTooDeep)
//   - padrões de ameaça em chaves e strings: SQL injection, XSS, path traversal e
//     command injection, cada um ligável/desligável
//
// Qualquer achado reprova o payload (deny-by-default). Os achados vão para o log
// apenas com tipo, regra e campo; o trecho casado nunca é logado nem devolvido.
//
// Sanitize é independente: devolve uma cópia com strings sem bytes de controle e
// com HTML escapado, para campos que o backend guarda ou ecoa.
package threat
